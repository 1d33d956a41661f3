package tor

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/sha3"
)

// OnionSuffix is the domain every onion service lives under.
const OnionSuffix = ".onion"

const (
	// v3 service ids are base32 of pubkey(32) || checksum(2) || version(1).
	v3IDLength      = 56
	v3DecodedLength = 35
	v3Version       = 0x03

	// v2 service ids are 16 base32 characters; Tor dropped them in 2021.
	v2IDLength = 16
)

// onionBase32 is the lower-case, unpadded alphabet Tor uses for service ids.
var onionBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// OnionHost is a parsed .onion host name.
type OnionHost struct {
	// ServiceID is the base32 label identifying the service, lower-cased.
	ServiceID string
	// Subdomain is anything left of the service id, e.g. "www".
	Subdomain string
	// Port is the port of the host, if any.
	Port string
}

// Address returns the service address: the service id plus OnionSuffix.
func (h OnionHost) Address() string {
	return h.ServiceID + OnionSuffix
}

// IsOnionHost reports whether host, with or without a port, is in the
// .onion domain. Such hosts are only reachable through Tor.
func IsOnionHost(host string) bool {
	name, _, _ := strings.Cut(strings.ToLower(host), ":")
	return strings.HasSuffix(name, OnionSuffix)
}

// ParseOnionHost splits an .onion host into its parts and verifies the
// service id: a v2 id yields ErrV2AddressDeprecated, and anything other
// than a v3 id with a correct checksum yields ErrInvalidOnionAddress.
// Catching a typo here saves waiting on a Tor circuit that can never be
// built.
func ParseOnionHost(host string) (OnionHost, error) {
	name, port, _ := strings.Cut(strings.ToLower(host), ":")
	labels, ok := strings.CutSuffix(name, OnionSuffix)
	if !ok || labels == "" {
		return OnionHost{}, fmt.Errorf("%w: %s", ErrInvalidOnionAddress, host)
	}

	h := OnionHost{ServiceID: labels, Port: port}
	if i := strings.LastIndexByte(labels, '.'); i >= 0 {
		h.Subdomain, h.ServiceID = labels[:i], labels[i+1:]
	}

	switch {
	case isV3ServiceID(h.ServiceID):
		return h, nil
	case isV2ServiceID(h.ServiceID):
		return OnionHost{}, fmt.Errorf("%w: %s", ErrV2AddressDeprecated, host)
	default:
		return OnionHost{}, fmt.Errorf("%w: %s", ErrInvalidOnionAddress, host)
	}
}

// IsValidV3Address reports whether address is "<v3 service id>.onion"
// with a correct checksum.
func IsValidV3Address(address string) bool {
	id, ok := strings.CutSuffix(strings.ToLower(address), OnionSuffix)
	return ok && isV3ServiceID(id)
}

// IsV2Address reports whether address is "<v2 service id>.onion".
func IsV2Address(address string) bool {
	id, ok := strings.CutSuffix(strings.ToLower(address), OnionSuffix)
	return ok && isV2ServiceID(id)
}

func isV3ServiceID(id string) bool {
	if len(id) != v3IDLength {
		return false
	}
	raw, err := onionBase32.DecodeString(strings.ToUpper(id))
	if err != nil || len(raw) != v3DecodedLength {
		return false
	}
	pubkey, checksum, version := raw[:32], raw[32:34], raw[34]
	return version == v3Version && bytes.Equal(checksum, v3Checksum(pubkey))
}

func isV2ServiceID(id string) bool {
	if len(id) != v2IDLength {
		return false
	}
	_, err := onionBase32.DecodeString(strings.ToUpper(id))
	return err == nil
}

// v3Checksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func v3Checksum(pubkey []byte) []byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pubkey)
	h.Write([]byte{v3Version})
	return h.Sum(nil)[:2]
}

// v3AddressFromPublicKey returns the v3 service address of an ed25519
// public key.
func v3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	raw := make([]byte, 0, v3DecodedLength)
	raw = append(raw, pubkey...)
	raw = append(raw, v3Checksum(pubkey)...)
	raw = append(raw, v3Version)
	return strings.ToLower(onionBase32.EncodeToString(raw)) + OnionSuffix, nil
}

// CheckSeeds validates the onion hosts among seeds. It reports whether any
// seed needs Tor and returns the first ParseOnionHost error. Other seeds
// are not inspected beyond parsing.
func CheckSeeds(seeds []string) (needsTor bool, err error) {
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || !IsOnionHost(u.Host) {
			continue
		}
		needsTor = true
		if _, err := ParseOnionHost(u.Host); err != nil {
			return true, err
		}
	}
	return needsTor, nil
}

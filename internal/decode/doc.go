// Package decode turns raw response bytes into text.
//
// The Decoder interface is the narrow capability the crawler needs from a
// content decoder: detect the character encoding of a body and convert it to
// UTF-8, or convert it using an encoding chosen by the caller. The default
// implementation, Charset, relies on golang.org/x/net/html/charset for
// detection (BOM, Content-Type parameter, <meta> prescan) and on
// golang.org/x/text for the actual conversion.
package decode

// Package config provides configuration structures and utilities for crawlkit.
// It defines the crawl settings, per-site overrides loaded from the
// .crawlkit file, environment overrides and report preferences.
package config

// SPDX-License-Identifier: MIT

package config

import "errors"

// Sentinels returned (wrapped) by Loader.Load for malformed files.
var (
	ErrUnknownConfigField = errors.New("unknown config field")
	ErrMultipleDocuments  = errors.New("config file holds more than one YAML document")
)

package appidentityassets

import _ "embed"

// YAML is the embedded copy of `.fulmen/app.yaml`, mirrored into a
// Go-embeddable location so `slidesmith version` and `envinfo` resolve the
// app identity even when the binary runs outside the repository.
//
// Keep this file in sync with `.fulmen/app.yaml`; both must name the same
// binary, env prefix, and config name.
//
//go:embed app.yaml
var YAML []byte

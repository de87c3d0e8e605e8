package statestore

import _ "embed"

// DescriptorYAML is the shipped plugin descriptor, scaffolded into the
// plugin tree by 'botmesh init'.
//
//go:embed plugin.yaml
var DescriptorYAML []byte

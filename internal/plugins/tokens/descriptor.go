package tokens

import _ "embed"

// DescriptorYAML is the shipped plugin descriptor, scaffolded into the
// plugin tree by 'botmesh init'. The signing secret and static operator
// hashes are deliberately absent: they flow from the api configuration,
// not from the plugin tree.
//
//go:embed plugin.yaml
var DescriptorYAML []byte

package plugin

// Bootstrap utility names. These utilities are constructed by the host
// before the kernel exists: the root logger, the plugin catalog itself and
// the settings source. Descriptors may declare them as dependencies
// without any descriptor of their own being present; the planner treats
// them as always satisfiable, subtracts them from the required set, and
// the kernel pre-seeds their instances instead of running factories.
const (
	BootstrapLogger   = "logger"
	BootstrapCatalog  = "catalog"
	BootstrapSettings = "settings"
)

// BootstrapUtilities returns the reserved bootstrap utility names.
func BootstrapUtilities() []string {
	return []string{BootstrapLogger, BootstrapCatalog, BootstrapSettings}
}

// IsBootstrap reports whether name is a reserved bootstrap utility.
func IsBootstrap(name string) bool {
	return name == BootstrapLogger || name == BootstrapCatalog || name == BootstrapSettings
}

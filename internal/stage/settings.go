package stage

import "github.com/modforge/datastage/internal/registry"

// settingTypes are the prototype types startup settings come from.
var settingTypes = []string{
	"bool-setting",
	"int-setting",
	"double-setting",
	"string-setting",
	"color-setting",
}

// startupSettings extracts the startup settings defined during the
// settings stage into the tree data-phase scripts see as the settings
// global: settings.startup[name].value. Settings with other
// setting_types are runtime concerns and stay invisible here. Hidden
// boolean settings take their forced_value when one is present.
func startupSettings(reg *registry.Registry) registry.Value {
	startup := make(registry.Table)

	for _, typ := range settingTypes {
		for _, name := range reg.Keys(typ) {
			proto, _ := reg.Get(typ, name)
			tbl, ok := proto.(registry.Table)
			if !ok {
				continue
			}
			if tbl.GetString("setting_type") != "startup" {
				continue
			}
			def, present := tbl["default_value"]
			if !present {
				continue
			}

			value := def.Copy()
			if typ == "bool-setting" {
				if hidden, ok := tbl.GetBool("hidden"); ok && hidden {
					if forced, present := tbl["forced_value"]; present {
						value = forced.Copy()
					}
				}
			}

			startup[name] = registry.Table{"value": value}
		}
	}

	return registry.Table{"startup": startup}
}

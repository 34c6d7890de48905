package plugin

import (
	"github.com/antmicro/libbtrace/processor/muxer"
	"github.com/antmicro/libbtrace/processor/trimmer"
)

// UtilsPluginName is the name of the always-available builtin plugin.
const UtilsPluginName = "utils"

func utilsPlugin() *Plugin {
	p := New(UtilsPluginName, "Common graph utilities")
	// Both adds only fail on duplicate names, impossible here.
	_ = p.AddClass(muxer.Class())
	_ = p.AddClass(trimmer.Class())
	return p
}

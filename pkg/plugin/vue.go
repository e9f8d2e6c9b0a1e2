package plugin

type vuePlugin struct{}

// Vue returns the plugin for single-file components: ".vue" files become
// resolvable and are served as JavaScript modules.
func Vue() Plugin {
	return vuePlugin{}
}

func (vuePlugin) Name() string { return "vue" }

func (vuePlugin) Extensions() []string { return []string{".vue"} }

func (vuePlugin) ContentTypes() map[string]string {
	return map[string]string{".vue": "text/javascript; charset=utf-8"}
}

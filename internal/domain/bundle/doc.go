// Package bundle loads installed application manifests.
//
// A manifest describes one bundle: how to start its process, whether the
// process is resident (keep_alive), the API level it targets and whether
// it allows its process to be cached. Manifests are YAML or TOML files
// anywhere below the bundles directory:
//
//	name: com.example.notes
//	api_version: 50012
//	support_process_cache: support
//	command: /opt/apps/notes/bin/notes
//	modules:
//	  - name: entry
//	    abilities: [MainAbility]
package bundle

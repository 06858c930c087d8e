// Package config loads the server-side configuration from the `server:` section
// of the config file (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - Listen, HTTPPort : bind address of the WebHDFS API (default :14000)
//   - Auth.Mode        : "pseudo" (user.name must be in Auth.Users),
//     "apikey" (Auth.Header must carry the key in Auth.KeyEnv) or "none"
//   - Storage.Retention: evict files idle for this long (default: never)
//
// Load(path) applies defaults before unmarshalling, then validates.
package config

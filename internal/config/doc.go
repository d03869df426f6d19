// Package config provides configuration parsing for motion servers.
//
// The configuration is stored in motion.json at the project root.
// This package handles loading, saving, validating, and converting it into
// a server.ServerConfig.
//
// # Configuration File Structure
//
//	{
//	  "name": "chat",
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "path": "/motion",
//	    "maxSessions": 10000,
//	    "maxEventQueue": 256
//	  },
//	  "timeouts": {
//	    "read": "60s",
//	    "heartbeat": "30s"
//	  },
//	  "metrics": {
//	    "enabled": true
//	  },
//	  "log": {
//	    "level": "debug",
//	    "format": "json"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sc, err := cfg.ToServerConfig()
package config

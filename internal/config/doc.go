// Package config provides configuration loading for the admissions service.
//
// Configuration is read from admissions.json (optional) and then overridden
// by ADMISSIONS_* environment variables.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "allowedOrigins": ["https://tuyensinh.example.edu.vn"]
//	  },
//	  "crm": {
//	    "baseURL": "https://crm.example.edu.vn",
//	    "apiKey": "...",
//	    "apiSecret": "...",
//	    "timeout": "10s"
//	  },
//	  "metadata": {
//	    "source": "crm",
//	    "fallback": "embedded"
//	  },
//	  "log": {"level": "info", "format": "json"}
//	}
//
// # Environment
//
//	ADMISSIONS_PORT=9000
//	ADMISSIONS_CRM_API_KEY=...
//	ADMISSIONS_METADATA_SOURCE=s3
//	ADMISSIONS_METADATA_S3_BUCKET=admissions-defaults
//
// # Usage
//
//	cfg, err := config.Load("admissions.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

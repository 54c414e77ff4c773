// Package config loads gateway settings from a file and SCHEDGATE_*
// environment variables and turns them into the auth, scheduling and observe
// configurations.
//
// Environment keys mirror the file structure with dots replaced by
// underscores:
//
//	ehr:
//	  base_url: https://ehr.example.com   # SCHEDGATE_EHR_BASE_URL
//	  site_id: default
//	auth:
//	  client_id: scheduler
//	  client_secret: secretref:env:EHR_CLIENT_SECRET
//	  grant: client_credentials
//	rules:
//	  business_days: [monday, tuesday, wednesday, thursday, friday]
//	  open: "08:00"
//	  close: "17:00"
//	  timezone: America/New_York
package config

// Package secret resolves credential references in gateway configuration.
//
// Client secrets and passwords are rarely written into config files. Values
// may instead name where the secret lives:
//
//	client_secret: secretref:env:EHR_CLIENT_SECRET
//	password: secretref:file:/run/secrets/ehr_password
//	client_secret: ${EHR_CLIENT_SECRET}
//
// ${VAR} references are expanded strictly: an unset variable is an error
// rather than an empty credential.
package secret

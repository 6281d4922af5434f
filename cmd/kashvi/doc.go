// Command kashvi is the Kashvi SSR CLI.
//
//	kashvi serve                 # HTTPS on APP_PORT (default 8443)
//	kashvi serve --port 9443
//	kashvi route:list            # list pages and routes
//	kashvi cert:check --cert other/localhost-cert.pem --key other/localhost-key.pem
//
// Certificates default to other/localhost-key.pem and
// other/localhost-cert.pem relative to the working directory. For local
// development they can be created with mkcert:
//
//	mkcert -key-file other/localhost-key.pem -cert-file other/localhost-cert.pem localhost
package main

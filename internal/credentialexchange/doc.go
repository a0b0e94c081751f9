// credentialexchange
//
// Handles the exchange of an identity bearer token for temporary AWS
// credentials via the credential service, and the local persistence that
// goes with it - the shared credentials file, the last-update record and
// the OS secret store token cache.
package credentialexchange

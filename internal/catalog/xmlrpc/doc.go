// Package xmlrpc implements the catalog client against a Spacewalk-style
// XML-RPC endpoint, including session establishment and teardown.
package xmlrpc

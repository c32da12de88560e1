// Package clustertest runs a fake multi node cluster in process. Every node
// is an httptest server that answers HEAD / with 200, serves the node list
// on GET /_nodes/_all/http and echoes every other request back as JSON.
// Individual nodes can be stopped or given a custom handler to simulate
// failures.
package clustertest

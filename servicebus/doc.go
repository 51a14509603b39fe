/*
Package servicebus provides a thin in-process mediator for query handling.
It coordinates bindings and dispatch while remaining decoupled from concrete transports via interfaces.
*/
package servicebus

/*
Package user contains the core data structures describing who is taking part in the relay.

It defines the network Address identifying a connection and the Participant struct,
the named occupant of the chat room, used both internally and on the wire.
*/
package user

import (
	"net"
	"strconv"
)

// Address identifies one connection by its remote host and port.
type Address struct {
	// Host is the remote IP address or host name of the connection.
	Host string `json:"host"`

	// Port is the remote port of the connection.
	Port int `json:"port"`
}

// String returns the address in host:port form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// AddressFromNet converts a net.Addr into an Address.
// Addresses that carry no port (pipes, unix sockets) keep the full string as Host and port 0.
func AddressFromNet(addr net.Addr) Address {
	if addr == nil {
		return Address{}
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Address{Host: addr.String()}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{Host: host}
	}

	return Address{Host: host, Port: port}
}

// Participant represents a joined, named occupant of the chat room.
// Field tags match the users_list entries of the connection-response message.
type Participant struct {
	Address

	// Name is the display name, unique among all joined participants.
	Name string `json:"name"`
}

package graph

// PortDirection distinguishes input from output ports.
type PortDirection int

const (
	PortInput PortDirection = iota
	PortOutput
)

// String returns the direction name used in logs.
func (d PortDirection) String() string {
	if d == PortInput {
		return "input"
	}
	return "output"
}

// Port is one end of a potential connection. A port belongs to exactly
// one component and carries at most one connection for its lifetime.
type Port struct {
	component *Component
	name      string
	direction PortDirection
	index     int
	userData  any

	conn *Connection
}

// Component returns the owning component.
func (p *Port) Component() *Component { return p.component }

// Name returns the port name, unique within the component and
// direction.
func (p *Port) Name() string { return p.name }

// Direction returns the port direction.
func (p *Port) Direction() PortDirection { return p.direction }

// Index returns the port's position among its component's ports of the
// same direction.
func (p *Port) Index() int { return p.index }

// UserData returns the opaque value the component attached at
// creation.
func (p *Port) UserData() any { return p.userData }

// IsConnected reports whether the port has a connection.
func (p *Port) IsConnected() bool { return p.conn != nil }

// Connection returns the port's connection, or nil.
func (p *Port) Connection() *Connection { return p.conn }

// Connection joins one output port to one input port. Connections are
// immutable: once made they are never rewired.
type Connection struct {
	upstream   *Port
	downstream *Port
}

// Upstream returns the output side of the connection.
func (c *Connection) Upstream() *Port { return c.upstream }

// Downstream returns the input side of the connection.
func (c *Connection) Downstream() *Port { return c.downstream }

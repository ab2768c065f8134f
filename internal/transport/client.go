// Package transport is the client side of the staff chat wire contract: a
// websocket push channel plus the REST fallback.
package transport

// Client bundles the push channel and the REST fallback for one session.
type Client struct {
	*RESTClient
	*Channel
}

// Options configures a Client.
type Options struct {
	APIURL  string
	WSURL   string
	Token   string
	REST    []RESTOption
	Channel []ChannelOption
}

// NewClient builds a transport client. The channel is not dialed until
// Connect is called.
func NewClient(opts Options) *Client {
	return &Client{
		RESTClient: NewRESTClient(opts.APIURL, opts.Token, opts.REST...),
		Channel:    NewChannel(opts.WSURL, opts.Channel...),
	}
}

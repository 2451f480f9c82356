// Package plugin defines the contract between the plugin host and the plugins
// it loads.
//
// A plugin never sees the bus directly. It receives a Proxy at initialization
// and uses it to send messages, reply to requesters and listen on tags:
//
//	func (p *Greeter) Initialize(ctx context.Context, proxy plugin.Proxy) error {
//		p.proxy = proxy
//		return proxy.AddMessageListener("greeter:hello", func(msg bus.Message) {
//			proxy.Reply(msg.Sender, "hello")
//		})
//	}
//
// Every message a plugin sends carries the plugin's name as sender. The
// alternatives service uses that name as the owner of registered alternatives,
// so unloading a plugin through the host removes everything it registered.
//
// Listeners added through a proxy are removed by the host when the plugin
// unloads; plugins do not need to clean them up in Unload.
package plugin

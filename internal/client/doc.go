/*
Package client sends one framed request to a service and waits for one framed
reply.

Exchange is the building block: dial under a timeout, write a frame, read a
frame, all under a single I/O deadline. Dial failures surface as
wire.ErrConnectionFailure and expired deadlines as wire.ErrTimeout. Error
frames from the peer come back as *wire.RemoteError.

	c := client.New(client.Config{DialTimeout: 5 * time.Second, IOTimeout: 30 * time.Second}, logger)
	reply, err := c.SendFile(ctx, "127.0.0.1:9000", "photo.jpg")
*/
package client

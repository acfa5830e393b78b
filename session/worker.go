package session

// txLoop is the send worker of a connected DLC. It exits once the DLC leaves
// Connected, or drains the queue in UserDisconnect and then sends DISC.
func (d *DLC) txLoop() {
	for {
		data, mtu, ok := d.nextFrame()
		if !ok {
			break
		}
		if err := d.s.sendData(d.dlci, data, mtu); err != nil {
			d.log.Warnf("send: %v", err)
			d.s.refund(d)
			d.h.SendFailed(d, data, err)
			continue
		}
		d.h.SendComplete(d)
	}

	d.s.run(func() {
		if d.state == StateUserDisconnect {
			d.disconnect()
		}
	})
}

// nextFrame blocks until the head of the queue may be sent under the active
// flow control discipline, and takes it.
func (d *DLC) nextFrame() ([]byte, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		switch d.state {
		case StateConnected:
		case StateUserDisconnect:
			if len(d.queue) == 0 {
				return nil, 0, false
			}
		default:
			return nil, 0, false
		}

		if len(d.queue) > 0 && d.s.canSend(d) {
			data := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.s.consume(d)
			return data, d.mtu, true
		}
		d.cond.Wait()
	}
}

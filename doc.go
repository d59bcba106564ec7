// Package bridge implements the core of a serial-to-network bridge device:
// a fan-out relay between one physical serial port and any number of remote
// terminal clients, a streamed firmware/data update stager with fail-safe
// commit semantics, and a prioritized device status indicator.
//
// The package is transport-agnostic. Serial and network I/O, persistent
// storage and authentication are injected through small interfaces so the
// core can be exercised without hardware.
//
// # Bridge
//
// A Bridge owns the set of subscribed clients and relays serial data to all
// of them without ever blocking on a slow consumer:
//
//	b, err := bridge.NewBridge(indicator, serialTx, serialMgr.Connected)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b.Subscribe(client)          // first subscriber raises TerminalActive
//	b.OnSerialData(chunk)        // broadcast; Backpressure drops, Fatal evicts
//	b.OnClientData(input)        // forwarded to the serial transmitter
//
// Clients report each delivery attempt as SendOK, SendBackpressure or
// SendFatal. Backpressure loses only the current chunk for that client;
// Fatal removes the client immediately. A periodic heartbeat frame
// (Bridge.RunHeartbeat) evicts dead clients the same way.
//
// # Indicator
//
// An Indicator holds exactly one DeviceState and renders it continuously.
// States carry fixed priorities: StateFault latches until restart,
// StateUpdating yields only to StateFault, everything else replaces freely:
//
//	ind, _ := bridge.NewIndicator()
//	go ind.Run(ctx, led)
//	ind.Set(bridge.StateSerialConnected)
//
// # Stager
//
// A Stager accepts one streamed image at a time and writes it into a storage
// region with erase/commit discipline. The active boot region is never
// touched until the external verifier has accepted the new image:
//
//	st, _ := bridge.NewStager(store, verifier, ind)
//	sess, err := st.Begin(bridge.TargetCode, contentLength)
//	if err != nil {
//	    return err // bridge.ErrSessionBusy, bridge.ErrCapacityExceeded
//	}
//	if err := sess.Stream(body); err != nil {
//	    return err
//	}
//	if err := sess.End(); err != nil {
//	    return err
//	}
//	// success: a restart is now appropriate
//
// Transient receive timeouts during Stream are retried at the same offset up
// to a configurable consecutive-timeout bound (default 3); anything else
// fails the session and leaves the currently booting image intact.
//
// # Error Handling
//
// The package provides specific error types for robust error handling:
//
//	var (
//	    ErrSessionBusy      // a session is already active
//	    ErrCapacityExceeded // image larger than the target region
//	    ErrIncomplete       // end() before declared length was received
//	    ErrIntegrityCheck   // verifier rejected the written image
//	    ErrTransportFatal   // unrecoverable receive error
//	    // ... and more
//	)
//
// Use errors.Is() for error type checking:
//
//	if errors.Is(err, bridge.ErrCapacityExceeded) {
//	    // reject with 413
//	}
package bridge

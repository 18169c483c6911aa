package media

import "testing"

func TestAudioDevicePrepareForCall(t *testing.T) {
	d := NewAudioDevice()
	if d.Connected() {
		t.Fatal("new device should start disconnected")
	}
	if d.CurrentRoute() != RouteReceiver {
		t.Fatalf("new device route = %v, want receiver", d.CurrentRoute())
	}

	d.PrepareForCall(false)
	if !d.Connected() {
		t.Error("PrepareForCall should attach the device")
	}
	if d.CurrentRoute() != RouteReceiver {
		t.Error("PrepareForCall(false) should not change the route")
	}

	d.PrepareForCall(true)
	if d.CurrentRoute() != RouteSpeaker {
		t.Error("PrepareForCall(true) should force the speaker route")
	}
}

func TestAudioDeviceDisconnectResetsRoute(t *testing.T) {
	d := NewAudioDevice()
	d.PrepareForCall(true)
	d.Disconnect()

	if d.Connected() {
		t.Error("Disconnect should detach the device")
	}
	if d.CurrentRoute() != RouteReceiver {
		t.Error("Disconnect should reset the route to receiver")
	}
}

func TestAudioDeviceSetRoute(t *testing.T) {
	d := NewAudioDevice()
	d.SetRoute(RouteSpeaker)
	if d.CurrentRoute() != RouteSpeaker {
		t.Error("SetRoute(speaker) did not stick")
	}
	d.SetRoute(RouteReceiver)
	if d.CurrentRoute() != RouteReceiver {
		t.Error("SetRoute(receiver) did not stick")
	}
}

func TestRoomSessionToggles(t *testing.T) {
	r := NewRoomSession(RoomConfig{}, nil, nil)

	if !r.AudioEnabled() {
		t.Error("microphone should start enabled")
	}
	if r.VideoEnabled() {
		t.Error("outgoing video should start disabled")
	}

	r.SetAudioEnabled(false)
	if r.AudioEnabled() {
		t.Error("SetAudioEnabled(false) did not stick")
	}
	r.SetVideoEnabled(true)
	if !r.VideoEnabled() {
		t.Error("SetVideoEnabled(true) did not stick")
	}

	// Disconnect with no peer connection is a no-op.
	r.Disconnect()
}

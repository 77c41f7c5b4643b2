package motors

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ZaberPositions is the 7-integer snapshot of native motor-unit positions
// described in spec.md §3. Serialized to YAML as a session sibling file and
// overwritten each successful session.
type ZaberPositions struct {
	HeadbarZ     int32 `yaml:"headbar_z"`
	HeadbarPitch int32 `yaml:"headbar_pitch"`
	HeadbarRoll  int32 `yaml:"headbar_roll"`
	WheelX       int32 `yaml:"wheel_x"`
	LickportZ    int32 `yaml:"lickport_z"`
	LickportX    int32 `yaml:"lickport_x"`
	LickportY    int32 `yaml:"lickport_y"`
}

// Group owns the three Zaber connections (headbar, wheel, lickport) and
// drives the high-level position vocabulary from §4.4. Every public motion
// method is synchronous from the caller's perspective: it issues commands,
// waits for the group to go idle, then re-parks, per the safety invariant
// "every motion method first calls unpark_motors() and ends with
// park_motors()".
type Group struct {
	Headbar      *Connection
	HeadbarZ     *Axis
	HeadbarPitch *Axis
	HeadbarRoll  *Axis

	Wheel  *Connection
	WheelX *Axis

	Lickport  *Connection
	LickportZ *Axis
	LickportX *Axis
	LickportY *Axis

	previous *ZaberPositions
}

// NewGroup wires the three connections and their axes. previous may be nil
// if no cached runtime position exists; axis metadata (park/maintenance/
// mount targets, limits) is supplied by the caller from the controllers'
// persisted non-volatile configuration.
func NewGroup(headbar *Connection, headbarZ, headbarPitch, headbarRoll *Axis, wheel *Connection, wheelX *Axis, lickport *Connection, lickportZ, lickportX, lickportY *Axis, previous *ZaberPositions) *Group {
	return &Group{
		Headbar: headbar, HeadbarZ: headbarZ, HeadbarPitch: headbarPitch, HeadbarRoll: headbarRoll,
		Wheel: wheel, WheelX: wheelX,
		Lickport: lickport, LickportZ: lickportZ, LickportX: lickportX, LickportY: lickportY,
		previous: previous,
	}
}

func (g *Group) axes() []*Axis {
	return []*Axis{g.HeadbarZ, g.HeadbarPitch, g.HeadbarRoll, g.WheelX, g.LickportZ, g.LickportX, g.LickportY}
}

// IsConnected reports whether all three underlying connections are live,
// per §4.4's "the group exposes is_connected = all-three-connected".
func (g *Group) IsConnected() bool {
	return g.Headbar.Connected && g.Wheel.Connected && g.Lickport.Connected
}

// UnparkMotors releases the safety lock on every axis.
func (g *Group) UnparkMotors() {
	for _, a := range g.axes() {
		a.Unpark()
	}
}

// ParkMotors engages the safety lock on every axis.
func (g *Group) ParkMotors() {
	for _, a := range g.axes() {
		a.Park()
	}
}

// WaitUntilIdle polls every axis until none reports busy, sleeping
// pollInterval between rounds so it doesn't flood the connection with
// state queries, per §4.4's "axis driver's built-in pacing".
func (g *Group) WaitUntilIdle() {
	for {
		anyBusy := false
		for _, a := range g.axes() {
			if a.IsBusy() {
				anyBusy = true
				break
			}
		}
		if !anyBusy {
			return
		}
		time.Sleep(pollInterval)
	}
}

// PrepareMotors unparks, homes every axis in parallel, waits for idle, and
// re-parks. Required before any motion command is accepted (§4.4).
func (g *Group) PrepareMotors(ctx context.Context) error {
	g.UnparkMotors()

	grp, _ := errgroup.WithContext(ctx)
	for _, a := range g.axes() {
		a := a
		grp.Go(func() error {
			a.Home()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("motors: prepare: %w", err)
	}

	g.WaitUntilIdle()
	g.ParkMotors()
	return nil
}

// RestorePosition moves to the last-cached runtime positions, or to
// mount/park defaults if none exist, per §4.4.
func (g *Group) RestorePosition() {
	g.UnparkMotors()

	if g.previous == nil {
		g.HeadbarZ.Move(g.HeadbarZ.MountPosition)
		g.HeadbarPitch.Move(g.HeadbarPitch.MountPosition)
		g.HeadbarRoll.Move(g.HeadbarRoll.MountPosition)
		g.WheelX.Move(g.WheelX.MountPosition)
		g.LickportZ.Move(g.LickportZ.ParkPosition)
		g.LickportX.Move(g.LickportX.ParkPosition)
		g.LickportY.Move(g.LickportY.ParkPosition)
	} else {
		g.HeadbarZ.Move(g.previous.HeadbarZ)
		g.HeadbarPitch.Move(g.previous.HeadbarPitch)
		g.HeadbarRoll.Move(g.previous.HeadbarRoll)
		g.WheelX.Move(g.previous.WheelX)
		g.LickportZ.Move(g.previous.LickportZ)
		g.LickportX.Move(g.previous.LickportX)
		g.LickportY.Move(g.previous.LickportY)
	}

	g.WaitUntilIdle()
	g.ParkMotors()
}

// ParkPosition moves all axes to their parking positions, per §4.4.
func (g *Group) ParkPosition() {
	g.UnparkMotors()
	for _, a := range g.axes() {
		a.Move(a.ParkPosition)
	}
	g.WaitUntilIdle()
	g.ParkMotors()
}

// MaintenancePosition moves all axes to the system maintenance position.
func (g *Group) MaintenancePosition() {
	g.UnparkMotors()
	for _, a := range g.axes() {
		a.Move(a.MaintenancePosition)
	}
	g.WaitUntilIdle()
	g.ParkMotors()
}

// MountPosition moves the lickport to its mount position; if no cached
// runtime position exists, the rest of the group also moves to mount, per
// §4.4 ("move lickport (and, if no cache, other groups) to mount").
func (g *Group) MountPosition() {
	g.UnparkMotors()

	g.LickportZ.Move(g.LickportZ.MountPosition)
	g.LickportX.Move(g.LickportX.MountPosition)
	g.LickportY.Move(g.LickportY.MountPosition)

	if g.previous == nil {
		g.HeadbarZ.Move(g.HeadbarZ.MountPosition)
		g.HeadbarPitch.Move(g.HeadbarPitch.MountPosition)
		g.HeadbarRoll.Move(g.HeadbarRoll.MountPosition)
		g.WheelX.Move(g.WheelX.MountPosition)
	} else {
		g.HeadbarZ.Move(g.previous.HeadbarZ)
		g.HeadbarPitch.Move(g.previous.HeadbarPitch)
		g.HeadbarRoll.Move(g.previous.HeadbarRoll)
		g.WheelX.Move(g.previous.WheelX)
	}

	g.WaitUntilIdle()
	g.ParkMotors()
}

// UnmountPosition retracts the lickport back to its mount position while
// leaving every other axis at its current position, per §4.4.
func (g *Group) UnmountPosition() {
	g.UnparkMotors()

	g.LickportY.Move(g.LickportY.MountPosition)
	g.LickportZ.Move(g.LickportZ.MountPosition)
	g.LickportX.Move(g.LickportX.MountPosition)

	g.WaitUntilIdle()
	g.ParkMotors()
}

// GenerateSnapshot polls current positions and returns a new ZaberPositions,
// also caching it as the group's "previous" position for subsequent
// Restore/Mount calls.
func (g *Group) GenerateSnapshot() ZaberPositions {
	snap := ZaberPositions{
		HeadbarZ:     g.HeadbarZ.GetPosition(),
		HeadbarPitch: g.HeadbarPitch.GetPosition(),
		HeadbarRoll:  g.HeadbarRoll.GetPosition(),
		WheelX:       g.WheelX.GetPosition(),
		LickportZ:    g.LickportZ.GetPosition(),
		LickportX:    g.LickportX.GetPosition(),
		LickportY:    g.LickportY.GetPosition(),
	}
	g.previous = &snap
	return snap
}

// Disconnect closes all three underlying connections.
func (g *Group) Disconnect() error {
	var firstErr error
	for _, c := range []*Connection{g.Headbar, g.Wheel, g.Lickport} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package types

import "github.com/golang/geo/r3"

// TypeMask marks which fields of a Setpoint the flight controller must
// ignore. The bit layout matches the MAVLink POSITION_TARGET_TYPEMASK.
type TypeMask uint16

const (
	IgnorePX TypeMask = 1 << iota
	IgnorePY
	IgnorePZ
	IgnoreVX
	IgnoreVY
	IgnoreVZ
	IgnoreAFX
	IgnoreAFY
	IgnoreAFZ
	Force
	IgnoreYaw
	IgnoreYawRate
)

// Idle tells the controller to stay put without following any field.
const Idle TypeMask = 0x4000

const (
	ignoreAcceleration = IgnoreAFX | IgnoreAFY | IgnoreAFZ

	MaskPosition            = IgnoreVX | IgnoreVY | IgnoreVZ | ignoreAcceleration | IgnoreYawRate
	MaskVelocity            = IgnorePX | IgnorePY | IgnorePZ | ignoreAcceleration | IgnoreYawRate
	MaskPositionAndVelocity = ignoreAcceleration | IgnoreYawRate
	MaskAcceleration        = IgnorePX | IgnorePY | IgnorePZ | IgnoreVX | IgnoreVY | IgnoreVZ | IgnoreYawRate

	MaskDefault = MaskPosition

	// MaskPathFollowing commands horizontal velocity, holds altitude by
	// position and steers by yaw rate.
	MaskPathFollowing = IgnorePX | IgnorePY | IgnoreVZ | ignoreAcceleration | IgnoreYaw
)

// Has reports whether every bit of flag is set.
func (m TypeMask) Has(flag TypeMask) bool {
	return m&flag == flag
}

// Setpoint is one command to the flight controller.
type Setpoint struct {
	TypeMask            TypeMask  `json:"type_mask"`
	Position            r3.Vector `json:"position"`
	Velocity            r3.Vector `json:"velocity"`
	AccelerationOrForce r3.Vector `json:"acceleration_or_force"`
	Yaw                 float64   `json:"yaw"`
	YawRate             float64   `json:"yaw_rate"`
}

// IdleSetpoint is the command streamed while nothing should move.
func IdleSetpoint() Setpoint {
	return Setpoint{TypeMask: Idle}
}

// Package security derives the posture report returned by
// Engine.SecurityReport from a flat description of the configuration.
package security

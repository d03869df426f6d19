// Package errors provides structured, coded errors for the motion runtime.
//
// Every failure class the session layer can surface has a registered code:
//
//	M001 protocol version mismatch        (connect rejected)
//	M002 component failed to connect      (connect rejected)
//	M003 motion failed                    (logged, session survives)
//	M004 broadcast handling failed        (logged, session survives)
//	M005 broadcast delivery failed        (contained in the delivery callback)
//	M006 component failed to disconnect   (logged, teardown completes)
//	M007 render failed
//	M008 subscription failed
//
// Codes M020-M039 cover the wire protocol and M040-M059 configuration.
//
// # Usage
//
//	err := errors.New(errors.CodeMotionFailure).
//	    WithField("motion", "increment").
//	    Wrap(cause)
//
//	slog.Error("motion failed", "code", err.Code, "error", err)
//	fmt.Println(err.Format())
package errors

package croc

import "go.uber.org/zap"

// NewDevelopmentLogger builds a human-readable, colorized zap logger
// suitable for the cmd/croc console driver and for tests, matching the
// teacher's practice of keeping log construction in one small helper
// rather than scattering zap.Config literals across the codebase.
func NewDevelopmentLogger() *zap.Logger {
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// NewProductionLogger builds a JSON, leveled production logger.
func NewProductionLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

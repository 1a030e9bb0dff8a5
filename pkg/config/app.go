package config

// App holds process-level settings shared by the binaries.
type App struct {
	Name string `env:"APP_NAME" envDefault:"coachplans"`
	Env  string `env:"APP_ENV" envDefault:"development"`

	// SweepInProcess runs the background plan sweep inside the API process.
	SweepInProcess bool `env:"SWEEP_IN_PROCESS" envDefault:"false"`
}

package domain

// Timeline is the controlled application's playback clock.
type Timeline interface {
	IsPlaying() bool
	IsStopped() bool
	CurrentTime() float64
	StartTime() float64
	EndTime() float64

	Play() error
	Pause() error
	Stop() error
}

package utils

// ErrorCounter accounts errors returned by ledger endpoints.
// CheckError returns true if err != nil
type ErrorCounter interface {
	CheckError(endpoint string, err error) bool
}

type DummyAEC struct{}

func (*DummyAEC) CheckError(endpoint string, err error) bool {
	return err != nil
}

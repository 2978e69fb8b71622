package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
}

// force timezone to be store-local because the scheduler may run this
// anywhere, and "same calendar day" decisions for duplicate suppression
// must be made against the store's clock, not the host's.
func Now() time.Time {
	return time.Now().In(Location)
}

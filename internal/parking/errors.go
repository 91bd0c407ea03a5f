package parking

import "errors"

var (
	ErrSpotUnavailable        = errors.New("spot unavailable")
	ErrSpotNotFound           = errors.New("spot not found")
	ErrVehicleNotFound        = errors.New("vehicle not found")
	ErrNotAuthorized          = errors.New("vehicle does not belong to actor")
	ErrTicketClosedOrNotFound = errors.New("ticket already checked out or not found")
	ErrLotNotFound            = errors.New("parking lot not found")
)

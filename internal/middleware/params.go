package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

const (
	RoomIDKey      = "roomID"
	NameKey        = "participantName"
	ParamsErrorKey = "paramsError"

	MaxNameLength = 40
)

var (
	ErrMissingParams = errors.New("missing room or name")
	ErrNameTooLong   = fmt.Errorf("name must be at most %d characters", MaxNameLength)
)

// WSParams reads the room code and display name of a websocket request.
// When either value is missing or unusable neither key is set and the reason
// is stored under ParamsErrorKey; the handler reports it over the socket so
// the client sees an error frame.
func WSParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := strings.TrimSpace(c.Query("room"))
		name := strings.TrimSpace(c.Query("name"))

		switch {
		case roomID == "" || name == "":
			c.Set(ParamsErrorKey, ErrMissingParams)
		case utf8.RuneCountInString(name) > MaxNameLength:
			c.Set(ParamsErrorKey, ErrNameTooLong)
		default:
			c.Set(RoomIDKey, roomID)
			c.Set(NameKey, name)
		}
		c.Next()
	}
}

// ParamsError returns the reason WSParams rejected the request, if any.
func ParamsError(c *gin.Context) error {
	if v, ok := c.Get(ParamsErrorKey); ok {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

package cookie

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Write emits inst as a Set-Cookie header on w.
func Write(w http.ResponseWriter, inst Instruction) {
	http.SetCookie(w, &http.Cookie{
		Name:     inst.Name,
		Value:    inst.Value,
		Path:     inst.Path,
		Domain:   inst.Domain,
		Expires:  inst.Expires,
		MaxAge:   inst.MaxAge,
		Secure:   inst.Secure,
		HttpOnly: inst.HTTPOnly,
		SameSite: inst.SameSite,
	})
}

// Apply writes the effective recorded instructions onto the gin response.
func Apply(c *gin.Context, r *Recorder) {
	for _, inst := range r.Effective() {
		Write(c.Writer, inst)
	}
}

// FromGin collects the inbound cookies of the request.
func FromGin(c *gin.Context) map[string]string {
	cookies := c.Request.Cookies()
	out := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		out[ck.Name] = ck.Value
	}
	return out
}

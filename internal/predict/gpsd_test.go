package predict

import (
	"fmt"
	"net"
	"testing"
	"time"
)

// gpsdStub listens on a loopback port and feeds every connection the given
// JSON lines after consuming the watch command.
func gpsdStub(t *testing.T, lines []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, len(gpsdWatch))
				if _, err := c.Read(buf); err != nil {
					return
				}
				for _, line := range lines {
					fmt.Fprintln(c, line)
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

// TestLocationFromGPSD verifies non-TPV chatter and fixless reports are
// skipped and the first real fix wins.
func TestLocationFromGPSD(t *testing.T) {
	addr := gpsdStub(t, []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"TPV","mode":1}`,
		`{"class":"TPV","mode":3,"lat":47.6062,"lon":-122.3321,"altMSL":56.4}`,
	})

	loc, err := LocationFromGPSD(addr, 2*time.Second)
	if err != nil {
		t.Fatalf("LocationFromGPSD returned error: %v", err)
	}
	if loc.Lat != 47.6062 || loc.Lon != -122.3321 || loc.Alt != 56.4 {
		t.Errorf("location = %+v, want the reported fix", loc)
	}
}

// TestLocationFromGPSDNoFix verifies a stream that ends before any 2D fix is
// an error, not a zero location.
func TestLocationFromGPSDNoFix(t *testing.T) {
	addr := gpsdStub(t, []string{
		`{"class":"TPV","mode":0}`,
		`{"class":"TPV","mode":1}`,
	})

	if _, err := LocationFromGPSD(addr, time.Second); err == nil {
		t.Fatal("LocationFromGPSD succeeded without a fix")
	}
}

// TestLocationFromGPSDDialFailure verifies an unreachable gpsd is reported.
func TestLocationFromGPSDDialFailure(t *testing.T) {
	if _, err := LocationFromGPSD("127.0.0.1:1", 200*time.Millisecond); err == nil {
		t.Fatal("LocationFromGPSD succeeded against a closed port")
	}
}

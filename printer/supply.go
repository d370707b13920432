package printer

import "fmt"

// encodeSupplyState renders one Supply as the octetString grammar used by
// printer-ipp.c's printer-supply attribute:
// "index=%d;type=%s;maxcapacity=%d;level=%d;colorantname=%s;"
func encodeSupplyState(index int, s Supply) []byte {
	return []byte(fmt.Sprintf(
		"index=%d;type=%s;maxcapacity=%d;level=%d;colorantname=%s;",
		index, s.Type, s.MaxCapacity, s.Level, s.Color,
	))
}

// encodeInputTray renders one InputTray as the octetString grammar used by
// printer-ipp.c's printer-input-tray attribute:
// "type=%s;mediafeed=%d;mediaxfeed=%d;maxcapacity=%d;level=%d;status=0;name=%s;"
func encodeInputTray(t InputTray) []byte {
	return []byte(fmt.Sprintf(
		"type=%s;mediafeed=%d;mediaxfeed=%d;maxcapacity=%d;level=%d;status=0;name=%s;",
		t.Type, t.MediaFeed, t.MediaXFeed, t.MaxCapacity, t.Level, t.Name,
	))
}


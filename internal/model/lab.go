package model

import "time"

// LabStatus is the operational state of a lab.  Only available labs accept
// new reservation requests.
type LabStatus string

const (
    LabAvailable   LabStatus = "available"
    LabMaintenance LabStatus = "maintenance"
    LabOffline     LabStatus = "offline"
)

// ParseLabStatus returns the status named by s.
func ParseLabStatus(s string) (LabStatus, bool) {
    switch st := LabStatus(s); st {
    case LabAvailable, LabMaintenance, LabOffline:
        return st, true
    }
    return "", false
}

// Lab is a bookable room in the `labs` table.  Labs are never hard
// deleted; taking one out of use means moving it to maintenance or offline.
type Lab struct {
    ID               uint64    `json:"id"`
    Name             string    `json:"name"`
    Code             string    `json:"code"`
    Capacity         int       `json:"capacity"`
    Location         string    `json:"location"`
    Status           LabStatus `json:"status"`
    EquipmentList    string    `json:"equipment_list"`
    SafetyGuidelines string    `json:"safety_guidelines"`
    CreatedAt        time.Time `json:"created_at"`
    UpdatedAt        time.Time `json:"updated_at"`
}

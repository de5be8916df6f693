package data

// ServiceSnapshot is the externally visible view of a cellular service
type ServiceSnapshot struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	State             string   `json:"state"`
	Failure           Failure  `json:"failure,omitempty"`
	FailureReason     string   `json:"failureReason,omitempty"`
	ActivationState   string   `json:"activationState"`
	RoamingState      string   `json:"roamingState"`
	NetworkTechnology string   `json:"networkTechnology,omitempty"`
	SubscriptionState string   `json:"subscriptionState,omitempty"`
	Strength          int      `json:"strength"`
	LastGoodAPN       *APN     `json:"lastGoodApn,omitempty"`
	UserAPN           *APN     `json:"userApn,omitempty"`
	ServingOperator   Operator `json:"servingOperator"`
}

// DeviceSnapshot is a read-only projection of a cellular device, used for
// display and published over NATS
type DeviceSnapshot struct {
	Path                    string           `json:"path"`
	EquipmentID             string           `json:"equipmentId"`
	Capability              string           `json:"capability"`
	State                   string           `json:"state"`
	ModemState              string           `json:"modemState"`
	Interface               string           `json:"interface"`
	InterfaceIndex          int              `json:"interfaceIndex"`
	MACAddress              string           `json:"macAddress,omitempty"`
	IMEI                    string           `json:"imei,omitempty"`
	IMSI                    string           `json:"imsi,omitempty"`
	MEID                    string           `json:"meid,omitempty"`
	ICCID                   string           `json:"iccid,omitempty"`
	MDN                     string           `json:"mdn,omitempty"`
	Manufacturer            string           `json:"manufacturer,omitempty"`
	Model                   string           `json:"model,omitempty"`
	FirmwareRevision        string           `json:"firmwareRevision,omitempty"`
	AllowRoaming            bool             `json:"allowRoaming"`
	ProviderRequiresRoaming bool             `json:"providerRequiresRoaming"`
	HomeProvider            Operator         `json:"homeProvider"`
	SimLocked               bool             `json:"simLocked"`
	Scanning                bool             `json:"scanning"`
	FoundNetworks           []Network        `json:"foundNetworks,omitempty"`
	Location                *CellLocation    `json:"location,omitempty"`
	Service                 *ServiceSnapshot `json:"service,omitempty"`
}

// Network is one entry returned by a network scan
type Network struct {
	ID         string `json:"id"`
	LongName   string `json:"longName,omitempty"`
	ShortName  string `json:"shortName,omitempty"`
	Status     string `json:"status,omitempty"`
	Technology string `json:"technology,omitempty"`
}

// CellLocation is the serving cell as reported by a 3GPP modem
type CellLocation struct {
	MCC string `json:"mcc"`
	MNC string `json:"mnc"`
	LAC string `json:"lac"`
	CI  string `json:"ci"`
}

package model

// PurchaseOrder is one PO row from the Apex PO source.
type PurchaseOrder struct {
	PONumber      FlexString `json:"poNumber"`
	TruckID       FlexString `json:"truckId"`
	PalletWhiteIn Count      `json:"palletWhiteInCount"`
	PalletChepIn  Count      `json:"palletChepInCount"`
	PalletPecoIn  Count      `json:"palletPecoInCount"`
	PalletIgpsIn  Count      `json:"palletIgpsInCount"`
}

// PalletsIn returns the total pallets delivered across all pallet types.
func (p PurchaseOrder) PalletsIn() int64 {
	return int64(p.PalletWhiteIn + p.PalletChepIn + p.PalletPecoIn + p.PalletIgpsIn)
}

// AncillaryItem is one fee line from the Apex ancillary source.
type AncillaryItem struct {
	PONumber          FlexString `json:"pO_Number"`
	AdditionalFeeName string     `json:"additional_Fee_Name"`
	Quantity          Quantity   `json:"quantity"`
	CarrierName       string     `json:"carrier_Name"`
}

// TruckSummary is one truck row from the Load-Entry source.
type TruckSummary struct {
	TruckID                FlexString `json:"truckID"`
	DriverWalletCheckoutID FlexString `json:"driverWalletCheckoutID"`
	CarrierName            string     `json:"carrierName"`
}

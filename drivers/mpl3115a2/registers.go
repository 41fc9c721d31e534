// Package mpl3115a2 provides constants for register addresses and bitfields
// used in the operation of the MPL3115A2 pressure/altitude sensor.
package mpl3115a2

const (
	// 7-bit I2C address (110_0000b).
	AddressDefault = 0x60

	// WHO_AM_I reads this on a genuine part.
	DeviceID = 0xC4

	// --- Register sub-addresses (8-bit) ---

	// Data
	regStatus   = 0x00 // R, alias of DR_STATUS with FIFO off
	regOutPMSB  = 0x01 // R, start of the 5-byte output block
	regOutPCSB  = 0x02 // R
	regOutPLSB  = 0x03 // R
	regOutTMSB  = 0x04 // R
	regOutTLSB  = 0x05 // R
	regDRStatus = 0x06 // R

	// Identity / config
	regWhoAmI    = 0x0C // R
	regPTDataCfg = 0x13 // R/W
	regCtrlReg1  = 0x26 // R/W

	// Output block length: P MSB, P CSB, P LSB, T MSB, T LSB.
	outBlockLen = 5
)

// CTRL_REG1 bits.
const (
	ctrlSBYB = 0x01 // active (continuous) when set; one-shot needs standby
	ctrlOST  = 0x02 // one-shot trigger, self-clearing
	ctrlRST  = 0x04 // software reset, self-clearing
	ctrlOS   = 0x38 // oversampling ratio field, bits 5:3
	ctrlRAW  = 0x40
	ctrlALT  = 0x80 // altimeter (1) / barometer (0)

	ctrlOSShift = 3
)

// PT_DATA_CFG bits.
const (
	ptTDEFE = 0x01 // temperature data-ready event
	ptPDEFE = 0x02 // pressure/altitude data-ready event
	ptDREM  = 0x04 // data-ready event mode
)

// STATUS bits.
const (
	StatusTDR  = 0x02 // new temperature data
	StatusPDR  = 0x04 // new pressure/altitude data
	StatusPTDR = 0x08 // new pressure/altitude or temperature data

	// statusAnyReady is the default completion mask.
	statusAnyReady = StatusPDR | StatusTDR
)

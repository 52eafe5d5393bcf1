package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"feedmill/internal/model"
)

// nitWeights are the DIAN verification-digit weights, applied right to left.
var nitWeights = []int{3, 7, 13, 17, 19, 23, 29, 37, 41, 43, 47, 53, 59, 67, 71}

// nitCheckDigit computes the verification digit for a NIT number.
func nitCheckDigit(nit string) (int, error) {
	if nit == "" {
		return 0, errors.New("empty NIT")
	}
	sum := 0
	for i := 0; i < len(nit); i++ {
		c := nit[len(nit)-1-i]
		if c < '0' || c > '9' {
			return 0, errors.New("NIT must be digits only")
		}
		if i >= len(nitWeights) {
			return 0, errors.New("NIT too long")
		}
		sum += int(c-'0') * nitWeights[i]
	}
	rem := sum % 11
	if rem <= 1 {
		return rem, nil
	}
	return 11 - rem, nil
}

func validateCustomerIn(in *model.CustomerIn) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return errors.New("name required")
	}
	in.DocType = strings.ToUpper(strings.TrimSpace(in.DocType))
	in.DocNumber = strings.TrimSpace(in.DocNumber)
	switch in.DocType {
	case model.DocTypeCedula:
		if in.DocNumber == "" {
			return errors.New("docNumber required")
		}
		for i := 0; i < len(in.DocNumber); i++ {
			if in.DocNumber[i] < '0' || in.DocNumber[i] > '9' {
				return errors.New("cedula must be digits only")
			}
		}
	case model.DocTypeNIT:
		dv, err := nitCheckDigit(in.DocNumber)
		if err != nil {
			return err
		}
		if in.NitDV == "" {
			in.NitDV = strconv.Itoa(dv)
		} else if in.NitDV != strconv.Itoa(dv) {
			return fmt.Errorf("NIT check digit mismatch: expected %d", dv)
		}
	default:
		return fmt.Errorf("docType must be %s or %s", model.DocTypeCedula, model.DocTypeNIT)
	}
	if in.DiscountPct < 0 || in.DiscountPct > 100 {
		return errors.New("discountPct must be between 0 and 100")
	}
	return nil
}

func validateOrderIn(in *model.OrderIn) error {
	if strings.TrimSpace(in.CustomerID) == "" {
		return errors.New("customerId required")
	}
	if len(in.Items) == 0 {
		return errors.New("items required")
	}
	for i, it := range in.Items {
		if it.ProductID == "" && it.SKU == "" {
			return fmt.Errorf("items[%d]: productId or sku required", i)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("items[%d]: qty must be positive", i)
		}
	}
	return nil
}

func validateProductIn(in *model.ProductIn) error {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" {
		return errors.New("sku required")
	}
	if in.Name == "" {
		return errors.New("name required")
	}
	if in.PricePerBag < 0 {
		return errors.New("pricePerBag must not be negative")
	}
	if in.BagsPerUnit < 0 {
		return errors.New("bagsPerUnit must not be negative")
	}
	return nil
}

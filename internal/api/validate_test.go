package api

import (
    "testing"

    "feedmill/internal/model"
)

func TestNitCheckDigit(t *testing.T) {
    cases := []struct {
        nit string
        dv  int
    }{
        {"800197268", 4},
        {"900373076", 4},
        {"830053105", 3},
    }
    for _, c := range cases {
        dv, err := nitCheckDigit(c.nit)
        if err != nil { t.Fatalf("nitCheckDigit(%s): %v", c.nit, err) }
        if dv != c.dv { t.Fatalf("nitCheckDigit(%s): got %d, want %d", c.nit, dv, c.dv) }
    }
}

func TestNitCheckDigitRejectsGarbage(t *testing.T) {
    if _, err := nitCheckDigit(""); err == nil { t.Fatal("empty NIT accepted") }
    if _, err := nitCheckDigit("80019A268"); err == nil { t.Fatal("non-digit NIT accepted") }
    if _, err := nitCheckDigit("1234567890123456"); err == nil { t.Fatal("overlong NIT accepted") }
}

func TestValidateCustomerInFillsDV(t *testing.T) {
    in := model.CustomerIn{Name: "Agro SAS", DocType: "nit", DocNumber: "800197268"}
    if err := validateCustomerIn(&in); err != nil { t.Fatalf("validate: %v", err) }
    if in.DocType != model.DocTypeNIT { t.Fatalf("docType not normalized: %s", in.DocType) }
    if in.NitDV != "4" { t.Fatalf("dv not filled: %q", in.NitDV) }
}

func TestValidateCustomerInCedula(t *testing.T) {
    in := model.CustomerIn{Name: "Ana", DocType: model.DocTypeCedula, DocNumber: "10.123"}
    if err := validateCustomerIn(&in); err == nil { t.Fatal("cedula with punctuation accepted") }
    in = model.CustomerIn{Name: "Ana", DocType: model.DocTypeCedula, DocNumber: "1012345678"}
    if err := validateCustomerIn(&in); err != nil { t.Fatalf("valid cedula rejected: %v", err) }
}

func TestValidateOrderIn(t *testing.T) {
    if err := validateOrderIn(&model.OrderIn{}); err == nil { t.Fatal("empty order accepted") }
    in := model.OrderIn{CustomerID: "c1", Items: []model.OrderItemIn{{SKU: "PEL40", Qty: 0}}}
    if err := validateOrderIn(&in); err == nil { t.Fatal("zero qty accepted") }
    in = model.OrderIn{CustomerID: "c1", Items: []model.OrderItemIn{{SKU: "PEL40", Qty: 2}}}
    if err := validateOrderIn(&in); err != nil { t.Fatalf("valid order rejected: %v", err) }
}

package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// OrderItemInput 订单明细录入
type OrderItemInput struct {
	ID               int64   `json:"id,omitempty"`
	MaterialID       int64   `json:"material_id" validate:"required,gt=0"`
	MaterialCode     string  `json:"material_code" validate:"required"`
	MaterialName     string  `json:"material_name"`
	MaterialSpec     string  `json:"material_spec"`
	MaterialUnit     string  `json:"material_unit"`
	RequiredQuantity float64 `json:"required_quantity" validate:"gt=0"`
	UnitPrice        float64 `json:"unit_price" validate:"gte=0"`
	TaxRate          float64 `json:"tax_rate" validate:"gte=0,lte=1"`
	DeliveryDate     string  `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Notes            string  `json:"notes"`
}

// OrderInput 订单录入（新建与编辑共用）
type OrderInput struct {
	OrderName       string           `json:"order_name"`
	CustomerID      int64            `json:"customer_id" validate:"required,gt=0"`
	CustomerName    string           `json:"customer_name" validate:"required"`
	CustomerContact string           `json:"customer_contact"`
	CustomerPhone   string           `json:"customer_phone"`
	OrderDate       string           `json:"order_date" validate:"required,datetime=2006-01-02"`
	DeliveryDate    string           `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	SalesmanName    string           `json:"salesman_name"`
	ShippingAddress string           `json:"shipping_address"`
	ShippingMethod  string           `json:"shipping_method"`
	PaymentTerms    string           `json:"payment_terms"`
	Notes           string           `json:"notes"`
	Items           []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误字段使用 json 名称
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 字段校验与交期校验
func (in *OrderInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("校验订单失败: %w", err)
		}
		return fromValidator(verrs)
	}
	if in.DeliveryDate < in.OrderDate {
		return &ValidationError{
			Message: "订单数据不完整",
			Fields:  map[string]string{"delivery_date": "交货日期不能早于订单日期"},
		}
	}
	return nil
}

func fromValidator(verrs validator.ValidationErrors) *ValidationError {
	ve := &ValidationError{Message: "订单数据不完整", Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		ve.Fields[field] = fieldMessage(fe)
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Field() == "items" && (fe.Tag() == "min" || fe.Tag() == "required") {
		return "请至少添加一条明细"
	}
	switch fe.Tag() {
	case "required":
		return "必填"
	case "gt":
		return "必须大于 " + fe.Param()
	case "gte":
		return "不能小于 " + fe.Param()
	case "lte":
		return "不能大于 " + fe.Param()
	case "datetime":
		return "日期格式应为 YYYY-MM-DD"
	}
	return "校验未通过: " + fe.Tag()
}

// ItemAmount 含税金额 = 数量 × 单价 × (1 + 税率)，保留两位小数
func ItemAmount(qty, price, taxRate float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).
		Mul(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(taxRate))).
		Round(2)
}

// ToEntity 转为后端请求体，计算明细金额与合计
func (in *OrderInput) ToEntity() *entity.SalesOrder {
	o := &entity.SalesOrder{
		OrderName:       in.OrderName,
		CustomerID:      in.CustomerID,
		CustomerName:    in.CustomerName,
		CustomerContact: in.CustomerContact,
		CustomerPhone:   in.CustomerPhone,
		OrderDate:       in.OrderDate,
		DeliveryDate:    in.DeliveryDate,
		SalesmanName:    in.SalesmanName,
		ShippingAddress: in.ShippingAddress,
		ShippingMethod:  in.ShippingMethod,
		PaymentTerms:    in.PaymentTerms,
		Notes:           in.Notes,
		Items:           make([]entity.SalesOrderItem, 0, len(in.Items)),
	}

	totalQty := decimal.Zero
	totalAmount := decimal.Zero
	for _, it := range in.Items {
		amount := ItemAmount(it.RequiredQuantity, it.UnitPrice, it.TaxRate)
		totalQty = totalQty.Add(decimal.NewFromFloat(it.RequiredQuantity))
		totalAmount = totalAmount.Add(amount)

		deliveryDate := it.DeliveryDate
		if deliveryDate == "" {
			deliveryDate = in.DeliveryDate
		}
		o.Items = append(o.Items, entity.SalesOrderItem{
			ID:                it.ID,
			MaterialID:        it.MaterialID,
			MaterialCode:      it.MaterialCode,
			MaterialName:      it.MaterialName,
			MaterialSpec:      it.MaterialSpec,
			MaterialUnit:      it.MaterialUnit,
			RequiredQuantity:  it.RequiredQuantity,
			UnitPrice:         it.UnitPrice,
			TaxRate:           it.TaxRate,
			ItemAmount:        amount.InexactFloat64(),
			DeliveryDate:      deliveryDate,
			RemainingQuantity: it.RequiredQuantity,
			Notes:             it.Notes,
		})
	}
	o.TotalQuantity = totalQty.InexactFloat64()
	o.TotalAmount = totalAmount.Round(2).InexactFloat64()
	return o
}

// ValidateForSubmit 提交前本地校验：状态允许提交，且至少一条有效明细
func ValidateForSubmit(o *entity.SalesOrder) error {
	lc := lifecycle.ForOrder(o)
	if !lc.CanSubmit() {
		return invalid(fmt.Sprintf("当前状态（%s）不可提交", lc.StageName))
	}
	if len(o.Items) == 0 {
		return &ValidationError{
			Message: "销售订单没有明细，无法提交",
			Fields:  map[string]string{"items": "请至少添加一条明细"},
		}
	}
	fields := map[string]string{}
	if o.CustomerID == 0 && o.CustomerName == "" {
		fields["customer_id"] = "必填"
	}
	for i, it := range o.Items {
		if it.MaterialID == 0 && it.MaterialCode == "" {
			fields[fmt.Sprintf("items[%d].material_id", i)] = "必填"
		}
		if it.RequiredQuantity <= 0 {
			fields[fmt.Sprintf("items[%d].required_quantity", i)] = "必须大于 0"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "订单数据不完整，无法提交", Fields: fields}
	}
	return nil
}

package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/sap-order-agent/server/internal/odata"
	logx "github.com/sap-order-agent/server/pkg/logger"
)

type OrderNumberInput struct {
	OrderNumber string `json:"order_number"`
}

type LimitInput struct {
	Limit int `json:"limit,omitempty"`
}

type CustomerInput struct {
	CustomerID string `json:"customer_id"`
	Limit      int    `json:"limit,omitempty"`
}

type ValueRangeInput struct {
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
}

func (s *Service) getSalesOrderDetailsTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolGetSalesOrderDetails,
			Desc: "Get complete details for a specific sales order number.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_number": {
					Type:     schema.String,
					Desc:     `The sales order number (e.g., "5051").`,
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *OrderNumberInput) (string, error) {
			number := odata.NormalizeOrderID(in.OrderNumber)
			if number == "" {
				return "FAILED: order_number is required", nil
			}
			records, err := s.searchOrders(ctx, odata.Query{Filter: "SalesOrder eq " + odata.Literal(number)})
			if err != nil {
				return failedf("Could not search sales orders: %v", err), nil
			}
			if len(records) == 0 {
				return fmt.Sprintf("Sales order %s not found", number), nil
			}
			o := records[0]
			return fmt.Sprintf("Sales Order %s:\n"+
				"• Value: %s %s\n"+
				"• Customer: %s\n"+
				"• Type: %s\n"+
				"• Status: %s\n"+
				"• Created: %s",
				number,
				odata.String(o, "TotalNetAmount", "N/A"), odata.String(o, "TransactionCurrency", "USD"),
				odata.String(o, "SoldToParty", "N/A"),
				odata.String(o, "SalesOrderType", "N/A"),
				odata.String(o, "OverallSDProcessStatus", "N/A"),
				odata.String(o, "CreationDate", "N/A"),
			), nil
		},
	)
}

func (s *Service) searchRecentOrdersTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolSearchRecentOrders,
			Desc: "Get the most recently created sales orders.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"limit": {
					Type: schema.Integer,
					Desc: "Number of orders to return (default 5).",
				},
			}),
		},
		func(ctx context.Context, in *LimitInput) (string, error) {
			records, err := s.searchOrders(ctx, odata.Query{
				OrderBy: "CreationDate desc",
				Top:     limitOrDefault(in.Limit),
			})
			if err != nil {
				return failedf("Could not search sales orders: %v", err), nil
			}
			if len(records) == 0 {
				return "No sales orders found", nil
			}
			return "Recent Sales Orders:\n" + orderLines(records), nil
		},
	)
}

func (s *Service) searchOrdersByCustomerTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolSearchOrdersByCustomer,
			Desc: "Search sales orders by customer (sold-to party) ID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {
					Type:     schema.String,
					Desc:     "The sold-to party ID of the customer.",
					Required: true,
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Number of orders to return (default 5).",
				},
			}),
		},
		func(ctx context.Context, in *CustomerInput) (string, error) {
			customer := strings.TrimSpace(in.CustomerID)
			if customer == "" {
				return "FAILED: customer_id is required", nil
			}
			records, err := s.searchOrders(ctx, odata.Query{
				Filter: "SoldToParty eq " + odata.Literal(customer),
				Top:    limitOrDefault(in.Limit),
			})
			if err != nil {
				return failedf("Could not search sales orders: %v", err), nil
			}
			if len(records) == 0 {
				return fmt.Sprintf("No orders found for customer %s", customer), nil
			}
			return fmt.Sprintf("Orders for Customer %s:\n", customer) + orderLines(records), nil
		},
	)
}

func (s *Service) getOrderValueRangeTool() tool.InvokableTool {
	return newTool(
		&schema.ToolInfo{
			Name: ToolGetOrderValueRange,
			Desc: "Find orders whose total net amount lies within a value range.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"min_value": {
					Type: schema.Number,
					Desc: "Lower bound of the total net amount (optional).",
				},
				"max_value": {
					Type: schema.Number,
					Desc: "Upper bound of the total net amount (optional).",
				},
			}),
		},
		func(ctx context.Context, in *ValueRangeInput) (string, error) {
			var parts []string
			if in.MinValue != nil {
				parts = append(parts, "TotalNetAmount ge "+formatAmount(*in.MinValue))
			}
			if in.MaxValue != nil {
				parts = append(parts, "TotalNetAmount le "+formatAmount(*in.MaxValue))
			}
			records, err := s.searchOrders(ctx, odata.Query{
				Filter: strings.Join(parts, " and "),
				Top:    ValueRangeTop,
			})
			if err != nil {
				return failedf("Could not search sales orders: %v", err), nil
			}
			if len(records) == 0 {
				return "No orders found in specified range", nil
			}
			return "Orders in Range:\n" + orderLines(records), nil
		},
	)
}

func (s *Service) searchOrders(ctx context.Context, q odata.Query) ([]map[string]any, error) {
	q.EntitySet = EntitySalesOrder
	d, err := s.client.Get(ctx, q)
	if err != nil {
		logx.Warn().Err(err).Str("filter", q.Filter).Msg("sales order search failed")
		return nil, err
	}
	return odata.Results(d), nil
}

func orderLines(records []map[string]any) string {
	lines := make([]string, 0, len(records))
	for _, o := range records {
		lines = append(lines, fmt.Sprintf("• Order %s: %s %s",
			odata.String(o, "SalesOrder", "N/A"),
			odata.String(o, "TotalNetAmount", "N/A"),
			odata.String(o, "TransactionCurrency", "USD")))
	}
	return strings.Join(lines, "\n")
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultSearchLimit
	}
	return clampInt(n, 1, MaxSearchLimit)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sap-order-agent/server/internal/agent/model"
	"github.com/sap-order-agent/server/internal/odata"
)

const servicePath = "/sap/opu/odata/sap/API_SALES_ORDER_SRV"

const orderWithItems = `{"d":{
	"SalesOrder":"4353","SoldToParty":"17100001","TotalNetAmount":"52.65",
	"TransactionCurrency":"EUR","SalesOrderDate":"/Date(1700000000000)/","DeliveryBlockReason":"01",
	"to_Item":{"results":[
		{"SalesOrderItem":"10","Material":"TG11","MaterialDescription":"Trading Good","OrderQuantity":"1","OrderQuantityUnit":"PC","NetAmount":"17.55"},
		{"SalesOrderItem":"20","Material":"TG12","OrderQuantity":"2"},
		{"SalesOrderItem":"30","Material":"TG13","OrderQuantity":"3"},
		{"SalesOrderItem":"40","Material":"TG14","OrderQuantity":"4"}
	]}}}`

const orderCollection = `{"d":{"results":[
	{"SalesOrder":"5051","TotalNetAmount":"1200.00","TransactionCurrency":"USD","SoldToParty":"C1","SalesOrderType":"OR","OverallSDProcessStatus":"A","CreationDate":"/Date(1700000000000)/"},
	{"SalesOrder":"5052","TotalNetAmount":"800.00"}
]}}`

// sapStub answers reads from canned bodies and runs the write protocol.
type sapStub struct {
	mu       sync.Mutex
	queries  []string
	patches  []string
	status   int
	entity   string
	list     string
	patchRes int
}

func newSAPStub() *sapStub {
	return &sapStub{status: http.StatusOK, entity: orderWithItems, list: orderCollection, patchRes: http.StatusNoContent}
}

func (s *sapStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Header.Get("x-csrf-token") == "fetch":
		w.Header().Set("x-csrf-token", "tok")
		w.Header().Add("Set-Cookie", "SAP_SESSIONID=s1; Path=/")
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		s.patches = append(s.patches, string(body))
		w.WriteHeader(s.patchRes)
	case strings.HasSuffix(r.URL.Path, "/A_SalesOrder"):
		s.queries = append(s.queries, r.URL.RawQuery)
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.list)
	case strings.Contains(r.URL.Path, "/A_SalesOrder("):
		s.queries = append(s.queries, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("ETag", `W/"1"`)
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.entity)
	default:
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, `{"d":{"EntitySets":["A_SalesOrder"]}}`)
	}
}

func newTestService(t *testing.T, stub *sapStub, md *odata.Metadata) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	client, err := odata.NewClient(odata.Config{
		BaseURL:     srv.URL,
		ServicePath: servicePath,
		Username:    "u",
		Password:    "p",
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)
	s := NewService(client, md)
	s.now = func() time.Time { return time.Date(2025, 10, 26, 22, 59, 50, 0, time.UTC) }
	return s, srv
}

func run(t *testing.T, s *Service, name, args string) string {
	t.Helper()
	tl, ok := s.Lookup(name)
	require.True(t, ok, name)
	sanitized, err := SanitizeArguments(context.Background(), name, args)
	require.NoError(t, err)
	out, err := tl.InvokableRun(context.Background(), sanitized)
	require.NoError(t, err)
	return out
}

func TestForProfile(t *testing.T) {
	s, _ := newTestService(t, newSAPStub(), nil)

	basic, err := s.ForProfile(model.ProfileBasic)
	require.NoError(t, err)
	infos, err := GetToolInfos(context.Background(), basic)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, i := range infos {
		names = append(names, i.Name)
	}
	assert.Equal(t, []string{ToolReadAndSummarizeOrder, ToolRemoveDeliveryBlock, ToolTestConnection}, names)

	_, err = s.ForProfile(model.ProfileMetadata)
	assert.ErrorIs(t, err, odata.ErrNoMetadata)

	memory, err := s.ForProfile(model.ProfileMemory)
	require.NoError(t, err)
	assert.Len(t, memory, 4)

	_, err = s.ForProfile("unknown")
	assert.Error(t, err)
}

func TestTestConnection(t *testing.T) {
	stub := newSAPStub()
	s, srv := newTestService(t, stub, nil)
	assert.Equal(t, "SUCCESS: Connected to SAP system at "+srv.URL, run(t, s, ToolTestConnection, ""))

	stub.status = http.StatusUnauthorized
	assert.True(t, strings.HasPrefix(run(t, s, ToolTestConnection, "{}"), "FAILED: Could not connect to SAP system at "+srv.URL))
}

func TestReadAndSummarizeOrder(t *testing.T) {
	stub := newSAPStub()
	s, _ := newTestService(t, stub, nil)

	out := run(t, s, ToolReadAndSummarizeOrder, `{"order_id":" SO4353 "}`)
	assert.Contains(t, out, "Sales Order Summary for 4353")
	assert.Contains(t, out, "Customer: 17100001")
	assert.Contains(t, out, "Total Value: EUR 52.65")
	assert.Contains(t, out, "Reason code '01'")
	assert.Contains(t, out, "4 line items")
	assert.Contains(t, out, "3. Material TG13 (Qty: 3)")
	assert.NotContains(t, out, "TG14")
	require.Len(t, stub.queries, 1)
	assert.Equal(t, servicePath+"/A_SalesOrder('4353')?$format=json&$expand=to_Item", stub.queries[0])

	stub.entity = `{"d":{"SalesOrder":"4354","DeliveryBlockReason":""}}`
	assert.Contains(t, run(t, s, ToolReadAndSummarizeOrder, `{"order_id":4354}`), "No Delivery Blocks")

	stub.status = http.StatusNotFound
	assert.True(t, strings.HasPrefix(run(t, s, ToolReadAndSummarizeOrder, `{"order_id":"9"}`), "FAILED: Could not read order 9"))

	assert.Equal(t, "FAILED: order_id is required", run(t, s, ToolReadAndSummarizeOrder, `{}`))
}

func TestGetOrderItems(t *testing.T) {
	s, _ := newTestService(t, newSAPStub(), nil)

	var items OrderItems
	require.NoError(t, json.Unmarshal([]byte(run(t, s, ToolGetOrderItems, `{"order_id":"4353"}`)), &items))
	assert.Equal(t, "4353", items.OrderID)
	assert.Equal(t, 4, items.TotalItems)
	assert.Equal(t, OrderItem{
		Material: "TG11", Description: "Trading Good", Quantity: "1", Unit: "PC", NetAmount: "17.55", ItemNumber: "10",
	}, items.Items[0])
	assert.Equal(t, "No description", items.Items[1].Description)
	assert.Equal(t, "EA", items.Items[1].Unit)
}

func TestGetOrderWithAssociations(t *testing.T) {
	stub := newSAPStub()
	s, _ := newTestService(t, stub, nil)

	out := run(t, s, ToolGetOrderWithAssociations, `{"order_id":"4353","associations":" to_Item , to_Partner ,"}`)
	assert.Contains(t, out, `"SalesOrder": "4353"`)
	assert.Equal(t, servicePath+"/A_SalesOrder('4353')?$format=json&$expand=to_Item,to_Partner", stub.queries[0])

	run(t, s, ToolGetOrderWithAssociations, `{"order_id":"4353"}`)
	assert.Equal(t, servicePath+"/A_SalesOrder('4353')?$format=json&$expand=to_Item", stub.queries[1])

	run(t, s, ToolGetOrderHeader, `{"order_id":"4353"}`)
	assert.Equal(t, servicePath+"/A_SalesOrder('4353')?$format=json", stub.queries[2])
}

func TestRemoveDeliveryBlock(t *testing.T) {
	stub := newSAPStub()
	s, _ := newTestService(t, stub, nil)

	out := run(t, s, ToolRemoveDeliveryBlock, `{"order_id":"SO4353","reason":"customer paid"}`)
	assert.Equal(t, "SUCCESS: Delivery block removed from order 4353. Reason: customer paid. Timestamp: 2025-10-26 22:59:50", out)
	require.Len(t, stub.patches, 1)
	assert.JSONEq(t, `{"DeliveryBlockReason":""}`, stub.patches[0])

	out = run(t, s, ToolRemoveDeliveryBlock, `{"order_id":"4353"}`)
	assert.Contains(t, out, "Reason: "+DefaultBlockReason)

	stub.patchRes = http.StatusPreconditionFailed
	out = run(t, s, ToolRemoveDeliveryBlock, `{"order_id":"4353"}`)
	assert.True(t, strings.HasPrefix(out, "FAILED: Could not remove delivery block from order 4353. Error: "))
	assert.Contains(t, out, "412")
}

func TestDiscoverMetadata(t *testing.T) {
	s, _ := newTestService(t, newSAPStub(), nil)
	assert.Contains(t, run(t, s, ToolDiscoverMetadata, ""), "FAILED")

	md := &odata.Metadata{
		EntityTypes: map[string]*odata.EntityType{
			EntityTypeSalesOrder: {
				Name:                 EntityTypeSalesOrder,
				Properties:           []odata.Property{{Name: "SalesOrder", Type: "Edm.String"}},
				NavigationProperties: []odata.NavigationProperty{{Name: "to_Item"}},
			},
		},
	}
	s, _ = newTestService(t, newSAPStub(), md)
	var summary map[string]odata.EntitySummary
	require.NoError(t, json.Unmarshal([]byte(run(t, s, ToolDiscoverMetadata, "{}")), &summary))
	assert.Equal(t, []string{"to_Item"}, summary[EntityTypeSalesOrder].NavigationProperties)
	assert.Equal(t, 1, summary[EntityTypeSalesOrder].PropertyCount)
}

func TestMemoryProfileSearches(t *testing.T) {
	stub := newSAPStub()
	s, _ := newTestService(t, stub, nil)

	out := run(t, s, ToolGetSalesOrderDetails, `{"order_number":"5051"}`)
	assert.Equal(t, "Sales Order 5051:\n• Value: 1200.00 USD\n• Customer: C1\n• Type: OR\n• Status: A\n• Created: /Date(1700000000000)/", out)
	assert.Equal(t, "$format=json&$filter=SalesOrder%20eq%20'5051'", stub.queries[0])

	out = run(t, s, ToolSearchRecentOrders, `{"limit":"500"}`)
	assert.Equal(t, "Recent Sales Orders:\n• Order 5051: 1200.00 USD\n• Order 5052: 800.00 USD", out)
	assert.Equal(t, "$format=json&$orderby=CreationDate%20desc&$top=50", stub.queries[1])

	run(t, s, ToolSearchRecentOrders, `{}`)
	assert.Equal(t, "$format=json&$orderby=CreationDate%20desc&$top=5", stub.queries[2])

	out = run(t, s, ToolSearchOrdersByCustomer, `{"customer_id":"C1","limit":2}`)
	assert.True(t, strings.HasPrefix(out, "Orders for Customer C1:\n"))
	assert.Equal(t, "$format=json&$filter=SoldToParty%20eq%20'C1'&$top=2", stub.queries[3])

	run(t, s, ToolGetOrderValueRange, `{"min_value":"1,000","max_value":5000.5}`)
	assert.Equal(t, "$format=json&$filter=TotalNetAmount%20ge%201000%20and%20TotalNetAmount%20le%205000.5&$top=10", stub.queries[4])

	stub.list = `{"d":{"results":[]}}`
	assert.Equal(t, "Sales order 1 not found", run(t, s, ToolGetSalesOrderDetails, `{"order_number":"1"}`))
	assert.Equal(t, "No sales orders found", run(t, s, ToolSearchRecentOrders, `{}`))
	assert.Equal(t, "No orders found for customer X", run(t, s, ToolSearchOrdersByCustomer, `{"customer_id":"X"}`))
	assert.Equal(t, "No orders found in specified range", run(t, s, ToolGetOrderValueRange, `{}`))

	stub.status = http.StatusInternalServerError
	for name, args := range map[string]string{
		ToolGetSalesOrderDetails:   `{"order_number":"1"}`,
		ToolSearchRecentOrders:     `{}`,
		ToolSearchOrdersByCustomer: `{"customer_id":"X"}`,
		ToolGetOrderValueRange:     `{}`,
	} {
		assert.True(t, Failed(run(t, s, name, args)), name)
	}
}

func TestSanitizeArguments(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name, tool, in, want string
	}{
		{"empty", ToolTestConnection, "", `{}`},
		{"not json", ToolGetOrderHeader, "order 4353", `{}`},
		{"numeric order id", ToolGetOrderHeader, `{"order_id":4353}`, `{"order_id":"4353"}`},
		{"prefixed order id", ToolGetSalesOrderDetails, `{"order_number":" SO5051"}`, `{"order_number":"5051"}`},
		{"limit clamp", ToolSearchRecentOrders, `{"limit":0}`, `{"limit":1}`},
		{"bad limit", ToolSearchRecentOrders, `{"limit":"many"}`, `{}`},
		{"null reason", ToolRemoveDeliveryBlock, `{"order_id":"1","reason":null}`, `{"order_id":"1"}`},
		{"amount strings", ToolGetOrderValueRange, `{"min_value":"10","max_value":"x"}`, `{"min_value":10}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeArguments(ctx, tc.tool, tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, got)
		})
	}
}

func TestUnknownTool(t *testing.T) {
	out, err := UnknownTool(context.Background(), "delete_everything", `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"unknown_tool","name":"delete_everything","note":"ignored"}`, out)
}

func TestWriteToolsAndFailureReplies(t *testing.T) {
	assert.True(t, IsWrite(ToolRemoveDeliveryBlock))
	assert.False(t, IsWrite(ToolGetOrderHeader))
	assert.False(t, IsWrite("nope"))

	assert.True(t, Failed("FAILED: order_id is required"))
	assert.False(t, Failed("SUCCESS: Delivery block removed from order 4353."))
}

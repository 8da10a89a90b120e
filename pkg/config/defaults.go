package config

import "time"

const (
	DefaultDCMotorPort   = "/dev/hamilton_dc_motors"
	DefaultLidarPort     = "/dev/rplidar"
	DefaultBaudRate      = 115200
	DefaultHTTPPort      = 8080
	DefaultPublishAddr   = "tcp://*:5560"
	DefaultMQTTBroker    = "tcp://localhost:1883"
	DefaultBusPrefix     = "hamilton"
	DefaultMulticastAddr = "239.0.0.22:7070"
)

// Default returns a configuration that runs the simulated driver with the
// IR localiser on the in-process bus.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.Body.DriverType = DriverSimulated
	cfg.Localisers.IR.Enabled = true
	cfg.Bus.Transport = TransportMemory
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills every zero-valued field that has a default.
func (c *AppConfig) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}

	b := &c.Body
	if b.Port == "" {
		b.Port = DefaultDCMotorPort
	}
	if b.Serial.BaudRate == 0 {
		b.Serial.BaudRate = DefaultBaudRate
	}
	if b.Multiplier == 0 {
		b.Multiplier = 255
	}
	if b.WheelBase == 0 {
		b.WheelBase = 0.2
	}
	if b.TrackWidth == 0 {
		b.TrackWidth = 0.22
	}
	motors := []*MotorConfig{&b.LeftFront, &b.RightFront, &b.LeftRear, &b.RightRear}
	for _, m := range motors {
		if m.MaxSpeed == 0 {
			m.MaxSpeed = 1.0
		}
	}
	// Motor ids default to wheel order only when none were configured.
	if b.LeftFront.ID == 0 && b.RightFront.ID == 0 && b.LeftRear.ID == 0 && b.RightRear.ID == 0 {
		for i, m := range motors {
			m.ID = uint8(i)
		}
	}

	if c.Lidar != nil {
		if c.Lidar.Port == "" {
			c.Lidar.Port = DefaultLidarPort
		}
		if c.Lidar.ScanTimeout == 0 {
			c.Lidar.ScanTimeout = 500 * time.Millisecond
		}
	}

	l := &c.Localisers
	if l.PollInterval == 0 {
		l.PollInterval = 20 * time.Millisecond
	}
	if l.FeedTimeout == 0 {
		l.FeedTimeout = 500 * time.Millisecond
	}
	if l.VR.Confidence == 0 {
		l.VR.Confidence = 0.9
	}
	if len(l.VR.EligibleClasses) == 0 {
		l.VR.EligibleClasses = []string{"tracker"}
	}
	if l.VR.TrackerOffset == 0 {
		l.VR.TrackerOffset = 0.14
	}
	if l.IR.Camera == "" {
		l.IR.Camera = "0"
	}
	if l.IR.Confidence == 0 {
		l.IR.Confidence = 0.8
	}
	if l.IR.MinBeacons == 0 {
		l.IR.MinBeacons = 4
	}
	if l.IR.ClusterRadius == 0 {
		l.IR.ClusterRadius = 0.02
	}
	if l.IR.MarkerOffset == 0 {
		l.IR.MarkerOffset = 0.058
	}
	if l.IR.Area == (Area{}) {
		l.IR.Area = Area{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	}

	f := &c.Fusion
	if f.CyclePeriod == 0 {
		f.CyclePeriod = 50 * time.Millisecond
	}
	if f.StalenessWindow == 0 {
		f.StalenessWindow = 250 * time.Millisecond
	}
	if f.ConfidenceThreshold == 0 {
		f.ConfidenceThreshold = 0.5
	}
	if f.GraceCycles == 0 {
		f.GraceCycles = 3
	}

	n := &c.Navigation
	if n.LinearGain == 0 {
		n.LinearGain = 10
	}
	if n.AngularGain == 0 {
		n.AngularGain = 2
	}
	if n.MaxLinearSpeed == 0 {
		n.MaxLinearSpeed = 0.5
	}
	if n.MaxAngularSpeed == 0 {
		n.MaxAngularSpeed = 1.0
	}
	if n.DeadBand == 0 {
		n.DeadBand = 0.02
	}
	if n.PositionTolerance == 0 {
		n.PositionTolerance = 0.1
	}
	if n.HeadingTolerance == 0 {
		n.HeadingTolerance = 0.1
	}

	if c.Map.FrontLeft == (Point{}) && c.Map.RearRight == (Point{}) {
		c.Map.FrontLeft = Point{X: 1, Y: 1}
		c.Map.RearRight = Point{X: -1, Y: -1}
	}

	bus := &c.Bus
	if bus.Transport == "" {
		bus.Transport = TransportZeroMQ
	}
	if bus.Prefix == "" {
		bus.Prefix = DefaultBusPrefix
	}
	if bus.PublishAddress == "" {
		bus.PublishAddress = DefaultPublishAddr
	}
	if bus.MQTT.Broker == "" {
		bus.MQTT.Broker = DefaultMQTTBroker
	}
	if bus.MQTT.ClientID == "" {
		bus.MQTT.ClientID = "hamilton"
	}
	if bus.MQTT.ConnectTimeout == 0 {
		bus.MQTT.ConnectTimeout = 5 * time.Second
	}
	t := &bus.Topics
	setDefault(&t.Pose, "pose")
	setDefault(&t.Odometry, "odometry")
	setDefault(&t.DriverHealth, "driver/health")
	setDefault(&t.CanvasTouch, "map/canvas_touch")
	setDefault(&t.LidarScan, "lidar/scan")
	setDefault(&t.VRDevices, "localisation/vr_devices")
	setDefault(&t.IRTrackers, "localisation/ir_trackers")

	p := &bus.Processing
	if p.HighPriorityWorkers == 0 {
		p.HighPriorityWorkers = 2
	}
	if p.StandardPriorityWorkers == 0 {
		p.StandardPriorityWorkers = 2
	}
	if p.LowPriorityWorkers == 0 {
		p.LowPriorityWorkers = 1
	}
	if p.QueueSize == 0 {
		p.QueueSize = 64
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
